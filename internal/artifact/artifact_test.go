package artifact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactJSON(t *testing.T) {
	data, err := json.Marshal(New("SourceCode", KindSource))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"SourceCode","kind":"source"}`, string(data))

	var a Artifact
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Image","kind":"image"}`), &a))
	assert.Equal(t, "Image", a.Name())
	assert.Equal(t, KindImage, a.Kind())

	err = json.Unmarshal([]byte(`{"name":"Other","kind":"tarball"}`), &a)
	assert.Error(t, err)
}
