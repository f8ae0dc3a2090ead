package skip

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

func TestDefaultSkipPolicy(t *testing.T) {
	f := NewDefaultSkipPolicyFactory()
	skippable := exception.NewBatchError("writer", "bad row", errors.New("x"), true, false)
	fatal := exception.NewBatchError("writer", "bad row", errors.New("x"), false, false)

	t.Run("unlimited", func(t *testing.T) {
		p := f.Create(0, nil)
		for i := 0; i < 100; i++ {
			assert.True(t, p.ShouldSkip(skippable))
			p.IncrementSkipCount()
		}
		assert.True(t, p.CanSkip())
		assert.Equal(t, 100, p.GetSkipCount())
		assert.Equal(t, 0, p.GetSkipLimit())
	})

	t.Run("limit reached", func(t *testing.T) {
		p := f.Create(2, nil)
		assert.True(t, p.ShouldSkip(skippable))
		p.IncrementSkipCount()
		p.IncrementSkipCount()
		assert.False(t, p.CanSkip())
		assert.False(t, p.ShouldSkip(skippable))
	})

	t.Run("classification", func(t *testing.T) {
		p := f.Create(0, []string{"sql.ErrNoRows"})
		assert.False(t, p.ShouldSkip(nil))
		assert.False(t, p.ShouldSkip(fatal))
		assert.False(t, p.ShouldSkip(errors.New("plain")))
		assert.True(t, p.ShouldSkip(fmt.Errorf("lookup: %w", sql.ErrNoRows)))
		assert.False(t, p.ShouldSkip(context.Canceled))
		assert.False(t, p.ShouldSkip(exception.NewBatchError("writer", "stopped", context.Canceled, true, false)))
	})

	t.Run("cancellation is never skipped even when named", func(t *testing.T) {
		p := f.Create(0, []string{"context.Canceled"})
		assert.False(t, p.ShouldSkip(context.Canceled))
	})
}
