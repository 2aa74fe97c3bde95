package mcpserver

// AssetFormatContract describes the YAML animation asset format that LLM
// consumers should follow when writing documents.
const AssetFormatContract = `# Segue Asset Format Contract

Every animation asset stored in Segue is one YAML document whose file name
ends with ` + "`.anim.yaml`" + `.

## Structure

` + "```" + `yaml
kind: montage            # OPTIONAL: sequence (default), montage or blendspace
name: combo              # REQUIRED: display name, unique per library
description: Three hit melee combo
tags: [melee, player]    # OPTIONAL: used for filtering
length: 3                # REQUIRED: seconds, >= 0; sampled at 30 frames per second
skeleton:                # OPTIONAL: parents must precede children
  - name: Root
    parent: -1
    ref_pose: {translation: [0, 0, 0], rotation: [0, 0, 0, 1], scale: [1, 1, 1]}
  - name: Spine01
    parent: 0
    ref_pose: {translation: [0, 10, 0], rotation: [0, 0, 0, 1], scale: [1, 1, 1]}
tracks:                  # OPTIONAL: raw keys per bone
  Root:
    keys:
      - {time: 0, transform: {translation: [0, 0, 0], rotation: [0, 0, 0, 1], scale: [1, 1, 1]}}
curves:                  # OPTIONAL: additive keys, written by set_key
  Root:
    keys: []
sections:                # montage only
  - {name: Start, start_time: 0, next: Mid}
  - {name: Mid, start_time: 1, next: End}
  - {name: End, start_time: 2}
` + "```" + `

## Rules

1. **Sections** have unique names and a ` + "`start_time`" + ` inside [0, length].
   A section ends where the next one (by start time) begins; the last ends at ` + "`length`" + `.
2. **next** names the section that plays after this one. Omit it to stop.
   Links form chains; a section reached from no other section starts a chain.
3. **Blend spaces** list ` + "`samples`" + ` of ` + "`{animation, x, y}`" + `; every sample needs an animation name.
4. **Rotations** are quaternions ` + "`[x, y, z, w]`" + `.
5. **File paths** end with ` + "`.anim.yaml`" + ` and use forward slashes; hidden
   files and directories are ignored.

## Previewing

Open a session with ` + "`open_preview`" + `, drive it with ` + "`preview_command`" + `
(play, pause, reverse, step_forward, step_backward, jump_start, jump_end,
jump_preview_start, jump_position, loop, preview_normal, preview_all_sections,
loop_all_setup, rate, restart) and inspect it with ` + "`preview_state`" + `.
` + "`set_bone_modifier`" + ` overrides a bone; ` + "`set_key`" + ` bakes the overrides into
the asset's additive curves at the current time and saves the document.
`
