package statement

import "encoding/json"

// Layout records which segmentation path produced a page or row. It is
// either Recognized or Unrecognized.
type Layout interface {
	isLayout()
	// Name is a short label for logs and metrics.
	Name() string
}

// Recognized means the text matched a known bank statement format.
type Recognized struct {
	BankFormat string
}

// Unrecognized means no known format matched and rows were recovered by
// the best-effort scanner.
type Unrecognized struct {
	FallbackUsed bool
}

func (Recognized) isLayout()   {}
func (Unrecognized) isLayout() {}

func (r Recognized) Name() string { return "recognized:" + r.BankFormat }

func (u Unrecognized) Name() string {
	if u.FallbackUsed {
		return "unrecognized:fallback"
	}
	return "unrecognized"
}

func (r Recognized) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind       string `json:"kind"`
		BankFormat string `json:"bankFormat"`
	}{"recognized", r.BankFormat})
}

func (u Unrecognized) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind         string `json:"kind"`
		FallbackUsed bool   `json:"fallbackUsed"`
	}{"unrecognized", u.FallbackUsed})
}
