package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flicky/coffeeshop/internal/model"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), model.OrderEvent{}))
	assert.NoError(t, p.Close())
}
