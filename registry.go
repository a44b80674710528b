package aggui

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Registry routes component requests and owns the props encoder.
type Registry struct {
	mu         sync.RWMutex
	mux        *http.ServeMux
	encoder    *Encoder
	components map[string]HXComponent

	// OnError writes the response for component failures that no
	// component-level handler claimed.
	OnError ErrorHandler
}

// NewRegistry creates a registry whose props are signed or sealed with key.
func NewRegistry(key []byte) *Registry {
	enc, err := NewEncoder(key)
	if err != nil {
		panic(fmt.Sprintf("aggui: failed to create encoder: %v", err))
	}
	return &Registry{
		mux:        http.NewServeMux(),
		encoder:    enc,
		components: make(map[string]HXComponent),
		OnError:    DefaultErrorHandler,
	}
}

// DefaultErrorHandler maps sentinel errors to status codes.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsNotFound(err):
		http.Error(w, "Not found", http.StatusNotFound)
	case IsDecryptionError(err), errors.Is(err, ErrInvalidFormat):
		http.Error(w, "Bad request", http.StatusBadRequest)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (reg *Registry) Encoder() *Encoder {
	return reg.encoder
}

type encoderSetter interface{ SetEncoder(*Encoder) }
type parentSetter interface{ SetParent(any) }
type errorHandlerSetter interface {
	OnError() ErrorHandler
	SetOnError(ErrorHandler)
}

// Add registers components. Each must embed *Component[P]. Panics on a
// prefix collision.
func (reg *Registry) Add(components ...HXComponent) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, comp := range components {
		prefix := comp.HXPrefix()
		if _, exists := reg.components[prefix]; exists {
			panic(fmt.Sprintf("aggui: prefix collision for %q", prefix))
		}
		if s, ok := comp.(encoderSetter); ok {
			s.SetEncoder(reg.encoder)
		}
		if s, ok := comp.(parentSetter); ok {
			s.SetParent(comp)
		}
		if s, ok := comp.(errorHandlerSetter); ok && s.OnError() == nil {
			s.SetOnError(func(w http.ResponseWriter, r *http.Request, err error) {
				reg.OnError(w, r, err)
			})
		}
		reg.components[prefix] = comp
		reg.mux.HandleFunc(prefix+"/", comp.HXServeHTTP)
	}
}

// Handler serves every registered component. Mount it at "/_c/".
// Mutating requests must carry HX-Request, which a cross-site form post
// cannot set.
func (reg *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead && !IsHTMX(r) {
			http.Error(w, "Forbidden: HTMX request required", http.StatusForbidden)
			return
		}
		reg.mu.RLock()
		mux := reg.mux
		reg.mu.RUnlock()
		mux.ServeHTTP(w, r)
	})
}
