package validator

import (
	"testing"

	"github.com/use-agent/linkscan/models"
)

func TestMemoFirstWriterWins(t *testing.T) {
	t.Parallel()

	m := NewMemo()
	first := models.ValidationResult{TargetURL: "https://a.test/", Outcome: models.OutcomeOK}
	second := models.ValidationResult{TargetURL: "https://a.test/", Outcome: models.OutcomeBroken}

	if _, stored := m.Store(first); !stored {
		t.Fatal("first Store was not stored")
	}
	got, stored := m.Store(second)
	if stored || got.Outcome != models.OutcomeOK {
		t.Errorf("second Store = %+v stored=%v, want first result kept", got, stored)
	}

	res, fresh := m.Do("https://a.test/", func() models.ValidationResult {
		t.Fatal("fn called for memoized target")
		return models.ValidationResult{}
	})
	if fresh || res.Outcome != models.OutcomeOK {
		t.Errorf("Do = %+v fresh=%v", res, fresh)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}
