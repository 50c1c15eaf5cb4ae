package server

import (
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		"ijoq_image_info",
		"ijoq_calibrate",
		"ijoq_retune",
		"ijoq_save_settings",
		"ijoq_load_settings",
		"ijoq_analyze",
		"ijoq_section_overlay",
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("expected %d tools, got %d", len(expectedTools), len(tools))
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		toolMap[tool.Name] = tool
	}
	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want object", tool.InputSchema["type"])
			}
			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema has no properties map")
			}
			required, _ := tool.InputSchema["required"].([]string)
			for _, r := range required {
				if _, ok := props[r]; !ok {
					t.Errorf("required property %q is not defined", r)
				}
			}
		})
	}
}

func TestToolDefinitions_SharedPropertiesNotAliased(t *testing.T) {
	var calibrate, analyze Tool
	for _, tool := range GetToolDefinitions() {
		switch tool.Name {
		case "ijoq_calibrate":
			calibrate = tool
		case "ijoq_analyze":
			analyze = tool
		}
	}
	cp := calibrate.InputSchema["properties"].(map[string]interface{})
	ap := analyze.InputSchema["properties"].(map[string]interface{})
	if _, ok := cp["settings_path"]; ok {
		t.Error("calibrate must not expose settings_path")
	}
	if _, ok := ap["mode"]; ok {
		t.Error("analyze must not expose mode")
	}
	for _, p := range []map[string]interface{}{cp, ap} {
		if _, ok := p["paths"]; !ok {
			t.Error("paths property missing")
		}
	}
}
