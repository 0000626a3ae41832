//go:build js && wasm
// +build js,wasm

package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/MeKo-Tech/moire/internal/compositor"
	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/render"
)

// maxResolution keeps in-browser renders responsive.
const maxResolution = 1024

// RenderRequest represents a pattern render request from JS
type RenderRequest struct {
	Layers     []string `json:"layers"`
	Resolution int      `json:"resolution"`
}

type RenderResponse struct {
	DataURL string   `json:"dataURL"`
	Key     string   `json:"key"`
	Skipped []string `json:"skipped,omitempty"`
	Applied int      `json:"applied"`
}

// renderPattern composes the requested layers and returns a PNG data URL.
func renderPattern(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing arguments")
	}

	var req RenderRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return errorResult(fmt.Sprintf("failed to parse request: %v", err))
	}
	if req.Resolution <= 0 || req.Resolution > maxResolution {
		return errorResult(fmt.Sprintf("resolution must be within 1..%d", maxResolution))
	}

	comp := compositor.New(compositor.Options{Workers: 1})
	field, report, err := comp.ComposeDefinitionsAndNormalize(req.Layers, req.Resolution)
	if err != nil {
		return errorResult(err.Error())
	}

	data, err := render.EncodeField(field, render.FormatPNG, render.Options{PNGCompression: "speed"})
	if err != nil {
		return errorResult(err.Error())
	}

	resp := RenderResponse{
		DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
		Key:     canonicalKey(req.Layers),
		Applied: report.Applied,
	}
	for _, s := range report.Skipped {
		resp.Skipped = append(resp.Skipped, fmt.Sprintf("layer %d: %v", s.Index, s.Err))
	}
	return toJS(resp)
}

// canonicalLayers returns the canonical form of each definition so the
// browser can build cache-friendly /pattern URLs for a `moire serve` backend.
func canonicalLayers(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing arguments")
	}

	var defs []string
	if err := json.Unmarshal([]byte(args[0].String()), &defs); err != nil {
		return errorResult(fmt.Sprintf("failed to parse layers: %v", err))
	}

	out := make([]interface{}, 0, len(defs))
	for _, def := range defs {
		spec, err := layer.Parse(def)
		if err != nil {
			return errorResult(err.Error())
		}
		out = append(out, layer.Format(spec))
	}
	return out
}

func canonicalKey(defs []string) string {
	specs := make([]layer.Spec, 0, len(defs))
	for _, def := range defs {
		if spec, err := layer.Parse(def); err == nil {
			specs = append(specs, spec)
		}
	}
	return layer.FormatAll(specs)
}

func toJS(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err.Error())
	}
	return js.Global().Get("JSON").Call("parse", string(data))
}

func errorResult(msg string) interface{} {
	return map[string]interface{}{"error": msg}
}

func main() {
	c := make(chan struct{})

	js.Global().Set("moireRenderPattern", js.FuncOf(renderPattern))
	js.Global().Set("moireCanonicalLayers", js.FuncOf(canonicalLayers))

	fmt.Println("Moire WASM module loaded")
	<-c
}
