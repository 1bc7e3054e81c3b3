package apperr

import (
	"errors"
	"fmt"
	"testing"

	"casewatch/internal/models"
)

func TestStageError_Wrapping(t *testing.T) {
	base := fmt.Errorf("judge: %w: status 500", ErrMalformed)
	err := Stage(models.StageJudge, base)

	if !errors.Is(err, ErrMalformed) {
		t.Error("sentinel lost through StageError")
	}
	if err.Transient {
		t.Error("Stage should not be transient")
	}
	if Transient(models.StageJudge, base).Transient != true {
		t.Error("Transient should be transient")
	}
}

func TestAsStage_ExtractsExisting(t *testing.T) {
	inner := Transient(models.StageNotify, errors.New("boom"))
	wrapped := fmt.Errorf("pipeline: %w", inner)

	se := AsStage(wrapped, models.StageFetch)
	if se.Stage != models.StageNotify || !se.Transient {
		t.Errorf("se = %+v, want original notify stage", se)
	}
}

func TestAsStage_FallbackForPlainError(t *testing.T) {
	se := AsStage(errors.New("plain"), models.StageFetch)
	if se.Stage != models.StageFetch || se.Transient {
		t.Errorf("se = %+v, want non-transient fetch", se)
	}
}
