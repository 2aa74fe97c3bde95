package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/segue/internal/session"
	"github.com/starford/segue/internal/xform"
)

func (s *Server) openPreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.hub.Open(ctx, path, req.GetBool("looping", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info), nil
}

func (s *Server) closePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.hub.Close(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("closed: " + id), nil
}

func (s *Server) previewCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.hub.Command(ctx, id, session.Command{
		Name:    name,
		Enabled: req.GetBool("enabled", false),
		Time:    float32(req.GetFloat("time", 0)),
		Rate:    float32(req.GetFloat("rate", 0)),
		Section: req.GetString("section", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info.State), nil
}

func (s *Server) previewState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.hub.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info), nil
}

func (s *Server) setBoneModifier(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bone, err := req.RequireString("bone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info session.Info
	if req.GetBool("remove", false) {
		info, err = s.hub.RemoveModifier(ctx, id, bone)
	} else {
		var value xform.Transform
		value, err = transformArg(req, bone, s.refPose(ctx, id, bone))
		if err == nil {
			info, err = s.hub.SetModifier(ctx, id, bone, session.ModifierUpdate{Value: value})
		}
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info.Modifiers), nil
}

func (s *Server) setKey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.hub.SetKey(ctx, id, req.GetStringSlice("bones", nil))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

// refPose returns the bone's currently evaluated transform, which omitted
// channels fall back to.
func (s *Server) refPose(ctx context.Context, id, bone string) xform.Transform {
	info, err := s.hub.Get(ctx, id)
	if err != nil {
		return xform.Identity()
	}
	if t, ok := info.Pose.Bones[bone]; ok {
		return t
	}
	return xform.Identity()
}

// transformArg overlays the translation, rotation and scale arguments on
// base.
func transformArg(req mcp.CallToolRequest, bone string, base xform.Transform) (xform.Transform, error) {
	args := req.GetArguments()
	out := base
	for _, ch := range []struct {
		key string
		dst []float32
	}{
		{"translation", out.Translation[:]},
		{"rotation", out.Rotation[:]},
		{"scale", out.Scale[:]},
	} {
		raw, ok := args[ch.key]
		if !ok || raw == nil {
			continue
		}
		list, ok := raw.([]any)
		if !ok || len(list) != len(ch.dst) {
			return base, fmt.Errorf("%s: %s needs %d numbers", bone, ch.key, len(ch.dst))
		}
		for i, v := range list {
			f, ok := v.(float64)
			if !ok {
				return base, fmt.Errorf("%s: %s[%d] is not a number", bone, ch.key, i)
			}
			ch.dst[i] = float32(f)
		}
	}
	return out, nil
}
