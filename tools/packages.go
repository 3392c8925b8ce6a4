package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PackageArgs struct {
	ActionPackageName string `json:"action_package_name" jsonschema:"name of the action package (a directory under the workspace root)"`
}

type UpdateDependenciesArgs struct {
	ActionPackageName string `json:"action_package_name" jsonschema:"name of the action package"`
	Dependencies      string `json:"action_package_dependencies_code" jsonschema:"YAML content to write into package.yaml"`
}

type UpdateDevDataArgs struct {
	ActionPackageName string `json:"action_package_name" jsonschema:"name of the action package"`
	ActionName        string `json:"action_package_action_name" jsonschema:"name of the action the dev data is for"`
	DevData           string `json:"action_package_dev_data" jsonschema:"JSON input for the action; comments and trailing commas are allowed"`
}

type UpdateCodeArgs struct {
	ActionPackageName string `json:"action_package_name" jsonschema:"name of the action package"`
	ActionCode        string `json:"action_code" jsonschema:"Python source to place into actions.py; it is formatted before writing"`
}

type GetFileContentsArgs struct {
	ActionPackageName string `json:"action_package_name" jsonschema:"name of the action package"`
	FileName          string `json:"file_name,omitempty" jsonschema:"file to read, relative to the package directory (default actions.py)"`
}

// RegisterPackageTools registers the tools that scaffold and edit action
// packages.
func RegisterPackageTools(server *mcp.Server, d Deps) {
	ws := d.Workspace

	addTool(server, d, &mcp.Tool{
		Name:        "bootstrap_action_package",
		Description: "Create a new action package under the workspace root from the minimal template, with empty dependencies, code and dev data. Returns the package path.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PackageArgs) (*mcp.CallToolResult, any, error) {
		dir, err := ws.Bootstrap(ctx, args.ActionPackageName)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult("Action successfully bootstrapped! Code available at " + dir), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "update_action_package_dependencies",
		Description: "Replace package.yaml of an action package. The content must be valid YAML.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UpdateDependenciesArgs) (*mcp.CallToolResult, any, error) {
		path, err := ws.UpdateDependencies(args.ActionPackageName, args.Dependencies)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult("Successfully updated the package dependencies at: " + path), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "update_action_package_action_dev_data",
		Description: "Write the dev input of one action to devdata/input_<action>.json.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UpdateDevDataArgs) (*mcp.CallToolResult, any, error) {
		if _, err := ws.UpdateDevData(args.ActionPackageName, args.ActionName, args.DevData); err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult(fmt.Sprintf("dev data for %s in the action package %s successfully created!",
			args.ActionName, args.ActionPackageName)), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "update_action_code",
		Description: "Replace actions.py of an action package with the given code, formatted first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UpdateCodeArgs) (*mcp.CallToolResult, any, error) {
		path, err := ws.UpdateCode(ctx, args.ActionPackageName, args.ActionCode)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult("Successfully updated the actions at " + path), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "open_action_code",
		Description: "Open an action package in the configured editor.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PackageArgs) (*mcp.CallToolResult, any, error) {
		msg, err := ws.OpenCode(ctx, args.ActionPackageName)
		if err != nil {
			return errorResult("Error: " + err.Error()), nil, nil
		}
		return textResult(msg), nil, nil
	})

	addTool(server, d, &mcp.Tool{
		Name:        "get_file_contents",
		Description: "Return the contents of a file in an action package (default actions.py).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetFileContentsArgs) (*mcp.CallToolResult, any, error) {
		contents, err := ws.ReadFile(args.ActionPackageName, args.FileName)
		var pathErr *fs.PathError
		switch {
		case err == nil:
			return textResult(contents), nil, nil
		case errors.Is(err, fs.ErrNotExist) && errors.As(err, &pathErr):
			return errorResult("File not found: " + pathErr.Path), nil, nil
		default:
			return errorResult(fmt.Sprintf("Error reading file: %v", err)), nil, nil
		}
	})
}
