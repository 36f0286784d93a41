package jlog_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/log"
	"github.com/stretchr/testify/require"

	"github.com/scholarpress/orchestrator"
	"github.com/scholarpress/orchestrator/adapters/jlog"
)

func TestDebug(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	jLogger := log.NewCmdLogger(buf, true)
	log.SetLoggerForTesting(t, jLogger)

	logger := jlog.New()
	ctx := context.Background()
	logger.Debug(ctx, "workflow created", orchestrator.MKV{"workflow_id": "wf-1"})

	require.Contains(t, buf.String(), "workflow created")
	require.Contains(t, buf.String(), "workflow_id=wf-1")
}

func TestError(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})
	jLogger := log.NewCmdLogger(buf, true)
	log.SetLoggerForTesting(t, jLogger)

	logger := jlog.New()
	ctx := context.Background()
	logger.Error(ctx, errors.New("tick failed"))

	require.Contains(t, buf.String(), "tick failed")
}
