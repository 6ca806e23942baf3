package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/quotehub-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		name      string
		projectID string
		kind      string
		input     string
		want      string
	}{
		{name: "short topic", projectID: "qh-dev", kind: "topics", input: "consolidation", want: "projects/qh-dev/topics/consolidation"},
		{name: "trims input", projectID: "qh-dev", kind: "topics", input: "  consolidation ", want: "projects/qh-dev/topics/consolidation"},
		{name: "full name passes through", projectID: "other", kind: "topics", input: "projects/qh-prod/topics/dlq", want: "projects/qh-prod/topics/dlq"},
		{name: "empty name", projectID: "qh-dev", kind: "topics", input: " ", want: ""},
		{name: "missing project", projectID: "", kind: "topics", input: "consolidation", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResourceName(tt.projectID, tt.kind, tt.input))
		})
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	assert.Equal(t, []string{"consolidation"}, TopicNames(config.PubSubConfig{ConsolidationTopic: "consolidation", OutboxDLQTopic: "  "}))
	assert.Equal(t, []string{"consolidation", "outbox-dlq"}, TopicNames(config.PubSubConfig{ConsolidationTopic: "consolidation", OutboxDLQTopic: "outbox-dlq"}))
	assert.Empty(t, TopicNames(config.PubSubConfig{}))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{ConsolidationTopic: "c"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("consolidation"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

func TestClientOptionsPrefersInlineCredentials(t *testing.T) {
	assert.Empty(t, ClientOptions(config.GCPConfig{}))
	assert.Len(t, ClientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/sa.json"}), 1)
	assert.Len(t, ClientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/sa.json"}), 1)
}
