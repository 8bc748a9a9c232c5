package outlier

import (
	"sync/atomic"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Holder serves the last successfully trained model.
type Holder struct {
	model atomic.Pointer[Model]
}

func NewHolder() *Holder {
	return &Holder{}
}

func (h *Holder) Store(m *Model) {
	h.model.Store(m)
}

// Current returns the loaded model or nil.
func (h *Holder) Current() *Model {
	return h.model.Load()
}

func (h *Holder) Evaluate(s *models.FeatureSample) (*models.Candidate, error) {
	m := h.model.Load()
	if m == nil {
		return nil, nil
	}
	return m.Evaluate(s)
}
