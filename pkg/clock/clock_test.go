package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed(t *testing.T) {
	at := time.Date(2024, time.February, 29, 23, 59, 0, 0, time.UTC)
	c := Fixed(at)

	assert.Equal(t, at, c.Now())
	assert.Equal(t, "2024-02-29", Today(c))
	assert.Equal(t, Period{Year: 2024, Month: 2}, CurrentPeriod(c))
}

func TestPeriod_Valid(t *testing.T) {
	assert.True(t, Period{Year: 2024, Month: 12}.Valid())
	assert.False(t, Period{Year: 2024, Month: 13}.Valid())
	assert.False(t, Period{Year: 2024, Month: 0}.Valid())
	assert.False(t, Period{}.Valid())
}

func TestOrSystem(t *testing.T) {
	assert.IsType(t, System{}, OrSystem(nil))
	assert.IsType(t, Fixed{}, OrSystem(Fixed(time.Unix(0, 0))))
}
