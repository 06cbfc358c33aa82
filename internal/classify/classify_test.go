package classify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingSet() []Sample {
	return []Sample{
		{Text: "Celebrity gossip: star spotted at red carpet party", Boring: true},
		{Text: "More celebrity gossip about the royal wedding party", Boring: true},
		{Text: "Go 1.26 released with compiler and runtime improvements", Boring: false},
		{Text: "Profiling the Go runtime scheduler and garbage collector", Boring: false},
	}
}

func TestTokenizeStemsAndDropsStopWords(t *testing.T) {
	tokens := Tokenize("The <b>Runners</b> were running, and a cat ran!")

	assert.Contains(t, tokens, "runner")
	assert.Contains(t, tokens, "run")
	assert.Contains(t, tokens, "cat")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "and")
	assert.NotContains(t, tokens, "a")
}

func TestItemTextStripsMarkup(t *testing.T) {
	assert.Equal(t, "Title body text", ItemText("Title", "<p>body <em>text</em></p>"))
	assert.Equal(t, "Only title", ItemText("Only title", ""))
}

func TestClassifierNotReadyWithoutBothClasses(t *testing.T) {
	c := New()

	_, ok := c.Classify("celebrity gossip", "")
	assert.False(t, ok)

	c.Train([]Sample{{Text: "celebrity gossip", Boring: true}})
	assert.False(t, c.Ready())

	_, ok = c.Classify("celebrity gossip", "")
	assert.False(t, ok)
}

func TestClassifierLearnsFromRatings(t *testing.T) {
	c := New()
	c.Train(trainingSet())

	require.True(t, c.Ready())

	boring, interesting := c.Counts()
	assert.Equal(t, 2, boring)
	assert.Equal(t, 2, interesting)

	isBoring, ok := c.Classify("Gossip from the celebrity party", "")
	require.True(t, ok)
	assert.True(t, isBoring)

	isBoring, ok = c.Classify("New Go runtime tracing", "<p>The compiler got faster.</p>")
	require.True(t, ok)
	assert.False(t, isBoring)
}

func TestClassifierTrainReplacesModel(t *testing.T) {
	c := New()
	c.Train(trainingSet())

	flipped := make([]Sample, 0, len(trainingSet()))
	for _, sample := range trainingSet() {
		sample.Boring = !sample.Boring
		flipped = append(flipped, sample)
	}

	c.Train(flipped)

	isBoring, ok := c.Classify("Gossip from the celebrity party", "")
	require.True(t, ok)
	assert.False(t, isBoring)
}

func TestClassifierConcurrentUse(t *testing.T) {
	c := New()

	var wg sync.WaitGroup

	for range 4 {
		wg.Go(func() { c.Train(trainingSet()) })
		wg.Go(func() { c.Classify("celebrity gossip", "") })
	}

	wg.Wait()
	assert.True(t, c.Ready())
}
