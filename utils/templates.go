package utils

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/CloudyKit/jet"
)

// HrefTemplates renders asset and store hrefs from named jet templates.
type HrefTemplates struct {
	set       *jet.Set
	templates map[string]*jet.Template
}

func NewHrefTemplates(defs map[string]string) (*HrefTemplates, error) {
	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		w.Write(b)
	}), ".", "/")

	h := &HrefTemplates{set: view, templates: map[string]*jet.Template{}}
	for name, src := range defs {
		t, err := view.LoadTemplate(name, src)
		if err != nil {
			return nil, fmt.Errorf("href template %s: %v", name, err)
		}
		h.templates[name] = t
	}
	return h, nil
}

func (h *HrefTemplates) Names() []string {
	var out []string
	for name := range h.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render executes template name with data as the context.
func (h *HrefTemplates) Render(name string, data interface{}) (string, error) {
	t, found := h.templates[name]
	if !found {
		return "", fmt.Errorf("href template %s is not defined", name)
	}
	var resBuf bytes.Buffer
	vars := make(jet.VarMap)
	if err := t.Execute(&resBuf, vars, data); err != nil {
		return "", fmt.Errorf("href template %s: %v", name, err)
	}
	return resBuf.String(), nil
}
