package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Configuration("bad direction %q", "up")

	assert.True(t, stderrors.Is(err, ErrConfiguration))
	assert.False(t, stderrors.Is(err, ErrTraining))
	assert.Equal(t, `bad direction "up"`, err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(CodeTraining, cause, "fold %d", 3)

	assert.True(t, stderrors.Is(err, ErrTraining))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "fold 3: boom", err.Error())
	assert.Nil(t, Wrap(CodeTraining, nil, "ignored"))
}

func TestGetCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Evaluation("auc undefined"))

	assert.Equal(t, CodeEvaluation, GetCode(wrapped))
	assert.Equal(t, CodeInternal, GetCode(stderrors.New("plain")))
}
