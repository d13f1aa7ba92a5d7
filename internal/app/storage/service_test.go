package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentKeyStaysInConversationNamespace(t *testing.T) {
	key := AttachmentKey("conv-1", "report.pdf")

	assert.True(t, strings.HasPrefix(key, "conv-1/"))
	assert.True(t, strings.HasSuffix(key, "-report.pdf"))
	require.Nil(t, ValidateAttachmentKey(key, "conv-1"))
}

func TestAttachmentKeySanitizesFilename(t *testing.T) {
	key := AttachmentKey("conv-1", "../../etc/passwd")

	assert.True(t, strings.HasPrefix(key, "conv-1/"))
	assert.NotContains(t, strings.TrimPrefix(key, "conv-1/"), "/")
}

func TestValidateAttachmentKeyRejectsForeignNamespace(t *testing.T) {
	assert.NotNil(t, ValidateAttachmentKey("conv-2/abc-file.png", "conv-1"))
	assert.NotNil(t, ValidateAttachmentKey("conv-1/../conv-2/file.png", "conv-1"))
	assert.NotNil(t, ValidateAttachmentKey("", "conv-1"))
}
