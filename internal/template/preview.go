// Package template renders body-template previews with Liquid so users
// can check personalization against sample recipients before a batch
// goes out. The send path itself performs only the literal {{name}}
// substitution; this richer engine is preview/validation tooling.
package template

import (
	"crypto/md5"
	"fmt"
	"sync"

	"github.com/osteele/liquid"
)

// Service renders Liquid templates with parse caching.
type Service struct {
	engine *liquid.Engine
	cache  sync.Map // md5(template) -> *liquid.Template
}

// NewService creates the preview service and registers custom filters.
func NewService() *Service {
	engine := liquid.NewEngine()

	// {{ name | default: "Participant" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &Service{engine: engine}
}

// Preview renders the template against sample recipient data. Parse
// errors come back to the caller; they are exactly what the preview
// endpoint exists to surface.
func (s *Service) Preview(tpl string, data map[string]interface{}) (string, error) {
	parsed, err := s.parse(tpl)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	out, err := parsed.RenderString(data)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out, nil
}

func (s *Service) parse(tpl string) (*liquid.Template, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(tpl)))
	if cached, ok := s.cache.Load(key); ok {
		return cached.(*liquid.Template), nil
	}
	parsed, err := s.engine.ParseString(tpl)
	if err != nil {
		return nil, err
	}
	s.cache.Store(key, parsed)
	return parsed, nil
}
