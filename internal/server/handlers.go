package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
	"github.com/DevonsMo/IJOQ/internal/imaging"
	"github.com/DevonsMo/IJOQ/internal/normalize"
	"github.com/DevonsMo/IJOQ/internal/pipeline"
	"github.com/DevonsMo/IJOQ/internal/settings"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "ijoq_calibrate", "ijoq_analyze").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// whose data carries the error type and the file it concerns.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithFields(logrus.Fields{"tool": params.Name}).WithError(err).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", errorData(err))
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	case "ijoq_image_info":
		return s.handleImageInfo(args)
	case "ijoq_calibrate":
		return s.handleCalibrate(ctx, args)
	case "ijoq_retune":
		return s.handleRetune(ctx, args)
	case "ijoq_save_settings":
		return s.handleSaveSettings(args)
	case "ijoq_load_settings":
		return s.handleLoadSettings(args)
	case "ijoq_analyze":
		return s.handleAnalyze(ctx, args)
	case "ijoq_section_overlay":
		return s.handleSectionOverlay(args)
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown tool: %s", name), nil)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

func errorData(err error) interface{} {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return map[string]interface{}{
			"type":    ae.Type,
			"message": err.Error(),
			"file":    ae.File,
		}
	}
	return err.Error()
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return apperrors.NewValidationError("invalid arguments", err)
	}
	return nil
}

// resolveFiles returns paths if given, otherwise the images found under
// folder.
func (s *Server) resolveFiles(paths []string, folder string) ([]string, error) {
	if len(paths) > 0 {
		return paths, nil
	}
	if folder == "" {
		return nil, apperrors.NewValidationError("either paths or folder is required", nil)
	}
	files, truncated, err := imaging.CollectImages(folder, s.cfg.Processing.MaxInputFiles)
	if err != nil {
		return nil, err
	}
	if truncated {
		s.log.WithFields(logrus.Fields{"folder": folder, "limit": s.cfg.Processing.MaxInputFiles}).
			Warn("folder holds more images than the limit; extra files ignored")
	}
	if len(files) == 0 {
		return nil, apperrors.NewInputError("no images found", nil).WithFile(folder)
	}
	return files, nil
}

func (s *Server) session(runID string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[runID]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown calibration run %q", runID), nil)
	}
	return sess, nil
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

// === Image information ===

type imageInfoArgs struct {
	Path            string `json:"path"`
	CompressionSize int    `json:"compressed_image_size"`
}

type imageInfoResult struct {
	*imaging.ImageInfo
	ResampledWidth  int `json:"resampled_width"`
	ResampledHeight int `json:"resampled_height"`
}

func (s *Server) handleImageInfo(args json.RawMessage) (interface{}, error) {
	var a imageInfoArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.CompressionSize <= 0 {
		a.CompressionSize = 512
	}
	info, err := imaging.LoadImageInfo(a.Path)
	if err != nil {
		return nil, err
	}
	w, h := imaging.ResampledSize(info.Width, info.Height, a.CompressionSize)
	return &imageInfoResult{ImageInfo: info, ResampledWidth: w, ResampledHeight: h}, nil
}

// === Calibration ===

type calibrateArgs struct {
	Paths  []string `json:"paths"`
	Folder string   `json:"folder"`
	Mode   string   `json:"mode"`

	Channel string `json:"channel"`
	CellsX  *int   `json:"cells_x"`
	CellsY  *int   `json:"cells_y"`

	CompressionSize *int     `json:"compressed_image_size"`
	BlurRadius      *int     `json:"blur_radius"`
	SectionSize     *int     `json:"section_size"`
	PixelsSampled   *int     `json:"pixels_sampled"`
	NoiseCutoff     *float64 `json:"noise_cutoff"`
	Lines           *int     `json:"lines"`

	Save bool `json:"save"`
}

// options turns the arguments into calibration options. Unset values fall
// back to the basic-mode defaults from the configuration.
func (a calibrateArgs) options(defaults basicDefaults) (settings.Options, error) {
	chName := a.Channel
	if chName == "" {
		chName = defaults.channel
	}
	ch, err := imaging.ParseChannel(chName)
	if err != nil {
		return settings.Options{}, err
	}
	cx, cy := intOr(a.CellsX, defaults.cellsX), intOr(a.CellsY, defaults.cellsY)

	switch a.Mode {
	case "", "basic":
		return settings.Basic(cx, cy, ch)
	case "advanced":
		o := settings.Options{
			CompressionSize: intOr(a.CompressionSize, 512),
			Channel:         ch,
			BlurRadius:      intOr(a.BlurRadius, 0),
			AutoBlur:        a.BlurRadius == nil,
			SectionCount:    intOr(a.SectionSize, 4),
			SampleCount:     intOr(a.PixelsSampled, 8),
			AutoNoise:       a.NoiseCutoff == nil,
			LineCount:       intOr(a.Lines, 10),
			CellsX:          cx,
			CellsY:          cy,
		}
		if a.NoiseCutoff != nil {
			o.NoiseMargin = *a.NoiseCutoff
		}
		return o, o.Validate()
	default:
		return settings.Options{}, apperrors.NewValidationError(
			fmt.Sprintf("mode must be basic or advanced (got %q)", a.Mode), nil)
	}
}

type basicDefaults struct {
	channel        string
	cellsX, cellsY int
}

type controlImageResult struct {
	File        string   `json:"file"`
	Error       string   `json:"error,omitempty"`
	Percentiles []int    `json:"percentiles_by_blur,omitempty"`
	Foreground  *float64 `json:"foreground_fraction,omitempty"`
}

type calibrateResult struct {
	RunID       string               `json:"run_id"`
	Params      settings.Params      `json:"params"`
	Percentiles []int                `json:"percentiles_by_blur"`
	Images      []controlImageResult `json:"images"`
	OutputDir   string               `json:"output_dir,omitempty"`
}

func describeImages(cal *pipeline.Calibration) []controlImageResult {
	out := make([]controlImageResult, len(cal.Images))
	for i, ci := range cal.Images {
		out[i].File = ci.File
		if !ci.OK() {
			out[i].Error = ci.Err.Error()
			continue
		}
		out[i].Percentiles = ci.Percentiles[:]
		if bin := cal.Processed(i); bin != nil {
			f := normalize.ForegroundFraction(bin)
			out[i].Foreground = &f
		}
	}
	return out
}

func (s *Server) handleCalibrate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a calibrateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	opts, err := a.options(basicDefaults{
		channel: s.cfg.Basic.Channel,
		cellsX:  s.cfg.Basic.CellsX,
		cellsY:  s.cfg.Basic.CellsY,
	})
	if err != nil {
		return nil, err
	}
	files, err := s.resolveFiles(a.Paths, a.Folder)
	if err != nil {
		return nil, err
	}

	cal, err := s.pc.Calibrate(ctx, files, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[cal.RunID] = &session{cal: cal, rc: pipeline.NewRecomputer(cal)}
	s.mu.Unlock()

	res := &calibrateResult{
		RunID:       cal.RunID,
		Params:      cal.Params(),
		Percentiles: cal.Percentiles[:],
		Images:      describeImages(cal),
	}
	if a.Save {
		if res.OutputDir, err = s.pc.SaveCalibration(s.cfg.Output.Dir, cal); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Re-tuning ===

type retuneArgs struct {
	RunID       string  `json:"run_id"`
	BlurRadius  int     `json:"blur_radius"`
	NoiseCutoff float64 `json:"noise_cutoff"`
	Current     int     `json:"current"`
}

type retuneResult struct {
	RunID      string               `json:"run_id"`
	Generation string               `json:"generation"`
	Params     settings.Params      `json:"params"`
	Images     []controlImageResult `json:"images"`
	Preview    string               `json:"preview_base64,omitempty"`
}

func (s *Server) handleRetune(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a retuneArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := s.session(a.RunID)
	if err != nil {
		return nil, err
	}
	if a.Current < 0 || a.Current >= len(sess.cal.Images) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("current must be within [0,%d)", len(sess.cal.Images)), nil)
	}

	gen, err := sess.rc.Submit(ctx, a.BlurRadius, a.NoiseCutoff, a.Current)
	if err != nil {
		return nil, err
	}
	// Updates left over from an abandoned request carry an older generation
	// and are dropped by Apply.
	for pending := len(sess.cal.Succeeded()); pending > 0; {
		select {
		case u := <-sess.rc.Updates():
			if u.Run == gen {
				pending--
			}
			if u.Err != nil {
				s.log.WithField("file", filepath.Base(sess.cal.Images[u.Index].File)).
					WithError(u.Err).Warn("recompute failed")
			}
			sess.cal.Apply(u)
		case <-ctx.Done():
			return nil, apperrors.NewCanceledError("re-tune canceled", ctx.Err())
		}
	}

	res := &retuneResult{
		RunID:      a.RunID,
		Generation: gen,
		Params:     sess.cal.Params(),
		Images:     describeImages(sess.cal),
	}
	if bin := sess.cal.Processed(a.Current); bin != nil {
		if res.Preview, err = imaging.EncodePNGBase64(bin); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Settings ===

type saveSettingsArgs struct {
	RunID string `json:"run_id"`
	Dir   string `json:"dir"`
}

func (s *Server) handleSaveSettings(args json.RawMessage) (interface{}, error) {
	var a saveSettingsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	sess, err := s.session(a.RunID)
	if err != nil {
		return nil, err
	}
	if a.Dir == "" {
		a.Dir = s.cfg.Output.Dir
	}
	dir, err := s.pc.SaveCalibration(a.Dir, sess.cal)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"output_dir":    dir,
		"settings_file": filepath.Join(dir, pipeline.SettingsName(s.version)),
		"params":        sess.cal.Params(),
	}, nil
}

type loadSettingsArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleLoadSettings(args json.RawMessage) (interface{}, error) {
	var a loadSettingsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return settings.LoadFile(a.Path)
}

// === Analysis ===

type analyzeArgs struct {
	Paths        []string `json:"paths"`
	Folder       string   `json:"folder"`
	SettingsPath string   `json:"settings_path"`
	RunID        string   `json:"run_id"`
	Save         bool     `json:"save"`
}

type analyzeItem struct {
	File  string   `json:"file"`
	IJOQ  *float64 `json:"ijoq,omitempty"`
	Error string   `json:"error,omitempty"`
}

type analyzeResult struct {
	Params    settings.Params `json:"params"`
	Results   []analyzeItem   `json:"results"`
	Failed    int             `json:"failed"`
	OutputDir string          `json:"output_dir,omitempty"`
}

func (s *Server) handleAnalyze(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a analyzeArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	var p settings.Params
	switch {
	case a.RunID != "":
		sess, err := s.session(a.RunID)
		if err != nil {
			return nil, err
		}
		p = sess.cal.Params()
	case a.SettingsPath != "":
		var err error
		if p, err = settings.LoadFile(a.SettingsPath); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.NewValidationError("either settings_path or run_id is required", nil)
	}

	files, err := s.resolveFiles(a.Paths, a.Folder)
	if err != nil {
		return nil, err
	}
	results, err := s.pc.AnalyzeBatch(ctx, files, p)
	if err != nil {
		return nil, err
	}

	res := &analyzeResult{Params: p, Results: make([]analyzeItem, len(results))}
	for i, r := range results {
		res.Results[i].File = r.File
		if r.Err != nil {
			res.Results[i].Error = r.Err.Error()
			res.Failed++
			continue
		}
		v := r.Score
		res.Results[i].IJOQ = &v
	}
	if a.Save {
		if res.OutputDir, err = s.pc.SaveAnalysis(s.cfg.Output.Dir, results); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Overlay ===

type sectionOverlayArgs struct {
	Path            string `json:"path"`
	CompressionSize int    `json:"compressed_image_size"`
	SectionSize     int    `json:"section_size"`
	Lines           int    `json:"lines"`
	Color           string `json:"color"`
	ShowLabels      *bool  `json:"show_labels"`
}

func (s *Server) handleSectionOverlay(args json.RawMessage) (interface{}, error) {
	var a sectionOverlayArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.CompressionSize <= 0 {
		a.CompressionSize = 512
	}
	if a.SectionSize <= 0 {
		a.SectionSize = 4
	}
	if a.Color == "" {
		a.Color = "#FF0000"
	}
	labels := a.ShowLabels == nil || *a.ShowLabels

	img, err := s.pc.Cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	resized, err := imaging.Resample(img, a.CompressionSize)
	if err != nil {
		return nil, err
	}
	return imaging.SectionOverlay(resized, a.SectionSize, a.Lines, a.Color, labels)
}
