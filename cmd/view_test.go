package cmd

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/relocator/internal/domain"
	m "github.com/mouse-blink/relocator/internal/model"
)

func TestViewCmd_UsesRootOutputFlagByDefault(t *testing.T) {
	mockWorkflow := withMockWorkflow(t)
	cmd := newTestRootCmd(newViewCmd())

	mockWorkflow.On("View", mock.Anything, mock.MatchedBy(func(args domain.ViewArgs) bool {
		return args.Output == m.Path(defaultOutputDir)
	})).Return(nil)

	cmd.SetArgs([]string{"view"})
	err := cmd.Execute()
	require.NoError(t, err)
}

func TestViewCmd_RootOutputFlagIsPassedThrough(t *testing.T) {
	mockWorkflow := withMockWorkflow(t)
	cmd := newTestRootCmd(newViewCmd())

	mockWorkflow.On("View", mock.Anything, mock.MatchedBy(func(args domain.ViewArgs) bool {
		return args.Output == m.Path("./build")
	})).Return(nil)

	cmd.SetArgs([]string{"view", "--output", "./build"})
	err := cmd.Execute()
	require.NoError(t, err)
}

func TestViewCmd_PositionalArgsAreRejected(t *testing.T) {
	withMockWorkflow(t)
	cmd := newTestRootCmd(newViewCmd())

	cmd.SetArgs([]string{"view", "./build"})
	err := cmd.Execute()
	require.Error(t, err)
}
