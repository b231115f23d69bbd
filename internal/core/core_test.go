package core_test

import (
	"context"
	"testing"

	"github.com/orgmirror/orgmirror/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestNilCoreGuards(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	var c *core.Core
	a.Equal(core.ErrNilCore, c.Init(ctx))
	a.Equal(core.ErrNilCore, c.Run(ctx))
}
