// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Segue tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/segue/internal/assetservice"
	"github.com/starford/segue/internal/index"
	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/session"
)

const contractURI = "segue://asset-format"

// Server wraps the MCP server with Segue tools.
type Server struct {
	mcp *server.MCPServer
	svc *assetservice.Service
	hub *session.Hub
}

// New creates a new MCP server with all Segue tools registered.
func New(svc *assetservice.Service, hub *session.Hub) *Server {
	s := &Server{svc: svc, hub: hub}

	s.mcp = server.NewMCPServer(
		"Segue",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_assets",
		mcp.WithDescription("Full-text search through asset names, descriptions, tags and section names."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchAssets)

	s.mcp.AddTool(mcp.NewTool("list_assets",
		mcp.WithDescription("List indexed assets, optionally filtered by kind or tag."),
		mcp.WithString("kind", mcp.Enum("sequence", "montage", "blendspace"), mcp.Description("Optional asset kind")),
		mcp.WithString("tag", mcp.Description("Optional tag")),
	), s.listAssets)

	s.mcp.AddTool(mcp.NewTool("read_asset",
		mcp.WithDescription("Read the YAML document of an asset."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the asset (e.g. hero/combo.anim.yaml)")),
	), s.readAsset)

	s.mcp.AddTool(mcp.NewTool("write_asset",
		mcp.WithDescription("Create or replace an asset document. "+
			"Content MUST follow the asset format contract. Read it first via "+
			"the get_asset_contract tool or the "+contractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path (must end with .anim.yaml)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("YAML document")),
		mcp.WithString("if_match", mcp.Description("Checksum the current document must have when replacing")),
	), s.writeAsset)

	s.mcp.AddTool(mcp.NewTool("get_asset_contract",
		mcp.WithDescription("Returns the Segue asset format contract. "+
			"Call this before writing assets to ensure correct structure."),
	), s.getAssetContract)

	s.mcp.AddTool(mcp.NewTool("list_sections",
		mcp.WithDescription("Describe a montage's sections, authored chains and the live link table each loop policy produces."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Montage path")),
	), s.listSections)

	s.mcp.AddTool(mcp.NewTool("edit_sections",
		mcp.WithDescription("Add, delete, link or sort montage sections and save the document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Montage path")),
		mcp.WithString("op", mcp.Required(), mcp.Enum(assetservice.OpAdd, assetservice.OpDelete, assetservice.OpSort, assetservice.OpLink)),
		mcp.WithString("name", mcp.Description("Section to add, delete or link from")),
		mcp.WithNumber("start_time", mcp.Description("Start time in seconds for add")),
		mcp.WithString("next", mcp.Description("Link target for link; empty clears the link")),
	), s.editSections)

	s.mcp.AddTool(mcp.NewTool("open_preview",
		mcp.WithDescription("Open a paused preview session on an asset and return its state."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Asset path")),
		mcp.WithBoolean("looping", mcp.Description("Start with looping enabled")),
	), s.openPreview)

	s.mcp.AddTool(mcp.NewTool("close_preview",
		mcp.WithDescription("Close a preview session."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session ID")),
	), s.closePreview)

	s.mcp.AddTool(mcp.NewTool("preview_command",
		mcp.WithDescription("Send a playback command to a preview session and return its new state."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("command", mcp.Required(), mcp.Enum(session.Commands...)),
		mcp.WithBoolean("enabled", mcp.Description("Flag for reverse, loop and loop_all_setup")),
		mcp.WithNumber("time", mcp.Description("Target time in seconds for jump_position")),
		mcp.WithNumber("rate", mcp.Description("Play rate for rate")),
		mcp.WithString("section", mcp.Description("Section name for loop and preview_normal")),
	), s.previewCommand)

	s.mcp.AddTool(mcp.NewTool("preview_state",
		mcp.WithDescription("Return a preview session's playback state, modifiers and evaluated pose."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session ID")),
	), s.previewState)

	s.mcp.AddTool(mcp.NewTool("set_bone_modifier",
		mcp.WithDescription("Override a bone's local transform in a preview session. "+
			"Omitted channels keep the bone's reference pose."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("bone", mcp.Required(), mcp.Description("Bone name")),
		mcp.WithArray("translation", mcp.WithNumberItems(), mcp.Description("[x, y, z]")),
		mcp.WithArray("rotation", mcp.WithNumberItems(), mcp.Description("Quaternion [x, y, z, w]")),
		mcp.WithArray("scale", mcp.WithNumberItems(), mcp.Description("[x, y, z]")),
		mcp.WithBoolean("remove", mcp.Description("Remove the modifier instead of setting it")),
	), s.setBoneModifier)

	s.mcp.AddTool(mcp.NewTool("set_key",
		mcp.WithDescription("Bake the session's bone modifiers into the asset's additive curves at the current time and save it."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithArray("bones", mcp.WithStringItems(), mcp.Description("Extra bones to key even when unmodified")),
	), s.setKey)

	// Resource: asset format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Asset Format Contract",
			mcp.WithResourceDescription("Canonical YAML animation asset format that all documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readAssetFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchAssets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) listAssets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.svc.ListAssets(ctx, index.ListQuery{
		Limit: 500,
		Kind:  models.Kind(req.GetString("kind", "")),
		Tag:   req.GetString("tag", ""),
		Sort:  "path",
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s\t%s\t%s", it.Path, it.Kind, it.Name)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetAsset(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(detail.Content), nil
}

func (s *Server) writeAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var detail *assetservice.AssetDetail
	if _, getErr := s.svc.GetAsset(ctx, path); getErr == nil {
		detail, err = s.svc.UpdateAsset(ctx, path, []byte(content), req.GetString("if_match", ""))
	} else {
		detail, err = s.svc.CreateAsset(ctx, path, []byte(content))
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s (checksum %s)", path, detail.Checksum)), nil
}

func (s *Server) getAssetContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AssetFormatContract), nil
}

func (s *Server) readAssetFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     AssetFormatContract,
		},
	}, nil
}

func (s *Server) listSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, err := s.svc.InspectAsset(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(in), nil
}

func (s *Server) editSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.EditSections(ctx, path, assetservice.SectionEdit{
		Op:    op,
		Name:  req.GetString("name", ""),
		Start: float32(req.GetFloat("start_time", 0)),
		Next:  req.GetString("next", ""),
	}, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail.Sections), nil
}
