package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("deliver: %w", &NotFoundError{Kind: "Webhook", ID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "Webhook not found: missing", nf.Error())
}
