package host

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestExtension() *Extension {
	return NewExtension(ExtensionOptions{
		Provider: ChatViewProviderOptions{
			ReplyDelay: testDelay,
			Document:   staticDocument("doc"),
		},
	})
}

func TestExtensionActivate_RegistersViewAndCommand(t *testing.T) {
	platform := newFakePlatform()
	ext := newTestExtension()

	require.NoError(t, ext.Activate(context.Background(), platform))
	defer func() { _ = ext.Deactivate() }()

	require.Contains(t, platform.views, ViewID)
	require.Contains(t, platform.commands, OpenChatCommand)
	require.Same(t, ext.Provider(), platform.views[ViewID])

	res, err := platform.commands[OpenChatCommand](context.Background())
	require.NoError(t, err)
	require.Equal(t, RevealResult{Action: RevealNone, ViewID: ViewID}, res)
	require.Equal(t, []string{ViewID}, platform.reveals)
}

func TestExtensionActivate_Twice(t *testing.T) {
	platform := newFakePlatform()
	ext := newTestExtension()
	require.NoError(t, ext.Activate(context.Background(), platform))
	defer func() { _ = ext.Deactivate() }()

	err := ext.Activate(context.Background(), platform)
	require.True(t, errors.Is(err, ErrAlreadyActive))
}

func TestExtensionActivate_CommandRegistrationFailureRollsBack(t *testing.T) {
	platform := newFakePlatform()
	platform.failOn = OpenChatCommand
	ext := newTestExtension()

	err := ext.Activate(context.Background(), platform)
	require.Error(t, err)
	require.Nil(t, ext.Provider())
	require.NotContains(t, platform.views, ViewID)
	require.Equal(t, []string{ViewID}, platform.disposed)
}

func TestExtensionDeactivate_DisposesInReverseOrderAndCancelsReplies(t *testing.T) {
	platform := newFakePlatform()
	ext := newTestExtension()
	require.NoError(t, ext.Activate(context.Background(), platform))

	provider := ext.Provider()
	c := newFakeContainer("c1")
	require.NoError(t, provider.ResolveView(context.Background(), c))
	c.send(sendMessage("pending"))
	require.Equal(t, 1, provider.PendingReplies())

	require.NoError(t, ext.Deactivate())
	require.Equal(t, []string{OpenChatCommand, ViewID}, platform.disposed)
	require.Equal(t, 0, provider.PendingReplies())
	require.Nil(t, ext.Provider())

	// second deactivate is a no-op
	require.NoError(t, ext.Deactivate())
	require.Len(t, platform.disposed, 2)
}

func TestExtension_ReactivateAfterDeactivate(t *testing.T) {
	platform := newFakePlatform()
	ext := newTestExtension()
	require.NoError(t, ext.Activate(context.Background(), platform))
	require.NoError(t, ext.Deactivate())
	require.NoError(t, ext.Activate(context.Background(), platform))
	require.NotNil(t, ext.Provider())
	require.NoError(t, ext.Deactivate())
}
