package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathsProperties() map[string]interface{} {
	return map[string]interface{}{
		"paths": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Absolute paths of the image files",
		},
		"folder": map[string]interface{}{
			"type":        "string",
			"description": "Folder scanned recursively for images when paths is omitted. Folders named *Output* are skipped.",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	calibrateProps := pathsProperties()
	for k, v := range map[string]interface{}{
		"mode": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"basic", "advanced"},
			"description": "basic derives every option from the cell estimates; advanced takes them explicitly. Default basic",
			"default":     "basic",
		},
		"channel": map[string]interface{}{
			"type":        "string",
			"description": "Stained channel: red, green, blue or white (white is read from green). Default from config",
		},
		"cells_x": map[string]interface{}{
			"type":        "integer",
			"description": "Approximate number of cells across the image (1-99)",
		},
		"cells_y": map[string]interface{}{
			"type":        "integer",
			"description": "Approximate number of cells down the image (1-99)",
		},
		"compressed_image_size": map[string]interface{}{
			"type":        "integer",
			"description": "Advanced: working size target (128-1024)",
		},
		"blur_radius": map[string]interface{}{
			"type":        "integer",
			"description": "Advanced: Gaussian blur radius (0-5). Omit for automatic",
		},
		"section_size": map[string]interface{}{
			"type":        "integer",
			"description": "Advanced: sections per axis (1-10)",
		},
		"pixels_sampled": map[string]interface{}{
			"type":        "integer",
			"description": "Advanced: samples per section axis (1-99)",
		},
		"noise_cutoff": map[string]interface{}{
			"type":        "number",
			"description": "Advanced: noise margin (-0.5 to 0.5). Omit for automatic",
		},
		"lines": map[string]interface{}{
			"type":        "integer",
			"description": "Advanced: scan lines per axis (1-99)",
		},
		"save": map[string]interface{}{
			"type":        "boolean",
			"description": "Write the settings file and processed control images to the output folder. Default false",
			"default":     false,
		},
	} {
		calibrateProps[k] = v
	}

	analyzeProps := pathsProperties()
	analyzeProps["settings_path"] = map[string]interface{}{
		"type":        "string",
		"description": "Settings file written by a calibration",
	}
	analyzeProps["run_id"] = map[string]interface{}{
		"type":        "string",
		"description": "Use the parameters of an in-memory calibration instead of a settings file",
	}
	analyzeProps["save"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Write the score CSV and processed images to the output folder. Default false",
		"default":     false,
	}

	return []Tool{
		{
			Name:        "ijoq_image_info",
			Description: "Read an image header and report its size, format and the working size it is resampled to.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"compressed_image_size": map[string]interface{}{
						"type":        "integer",
						"description": "Working size target used to report the resampled size. Default 512",
						"default":     512,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "ijoq_calibrate",
			Description: "Calibrate analysis parameters from control images. Returns a run_id that ijoq_retune, ijoq_save_settings and ijoq_analyze accept.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": calibrateProps,
			},
		},
		{
			Name:        "ijoq_retune",
			Description: "Change the blur radius and noise margin of a calibration and recompute its processed images, starting from the image being viewed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id":       map[string]interface{}{"type": "string", "description": "Calibration run ID"},
					"blur_radius":  map[string]interface{}{"type": "integer", "description": "Blur radius (0-5)"},
					"noise_cutoff": map[string]interface{}{
						"type":        "number",
						"description": "Noise margin (-0.5 to 0.5)",
					},
					"current": map[string]interface{}{
						"type":        "integer",
						"description": "Index of the image being viewed; it is recomputed first and returned as a preview. Default 0",
						"default":     0,
					},
				},
				"required": []string{"run_id", "blur_radius", "noise_cutoff"},
			},
		},
		{
			Name:        "ijoq_save_settings",
			Description: "Write a calibration's settings file and processed control images into a new Settings_Output folder.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": map[string]interface{}{
						"type":        "string",
						"description": "Calibration run ID",
					},
					"dir": map[string]interface{}{
						"type":        "string",
						"description": "Parent folder. Default from config",
					},
				},
				"required": []string{"run_id"},
			},
		},
		{
			Name:        "ijoq_load_settings",
			Description: "Parse a settings file and return its parameters.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the settings file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "ijoq_analyze",
			Description: "Score experimental images with a fixed parameter set. Failed images are reported individually and do not stop the batch.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": analyzeProps,
			},
		},
		{
			Name:        "ijoq_section_overlay",
			Description: "Draw the section grid and scan lines on the resampled image so the chosen section and line counts can be checked by eye.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"compressed_image_size": map[string]interface{}{
						"type":        "integer",
						"description": "Working size target. Default 512",
						"default":     512,
					},
					"section_size": map[string]interface{}{
						"type":        "integer",
						"description": "Sections per axis. Default 4",
						"default":     4,
					},
					"lines": map[string]interface{}{
						"type":        "integer",
						"description": "Scan lines per axis, 0 for none. Default 0",
						"default":     0,
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Section boundary color as hex. Default #FF0000",
						"default":     "#FF0000",
					},
					"show_labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Label each section with its column,row index. Default true",
						"default":     true,
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
