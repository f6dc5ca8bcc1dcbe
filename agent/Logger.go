package agent

import "sort"

// Labels names the axes of a logged channel
type Labels struct {
	X string
	Y string
}

// Logger collects named series of scalars, such as losses or episode
// returns, over the lifetime of an agent. A Logger is persisted along
// with the agent.
type Logger struct {
	Series map[string][]float64
	Labels map[string]Labels
}

// NewLogger returns an empty Logger
func NewLogger() *Logger {
	return &Logger{
		Series: make(map[string][]float64),
		Labels: make(map[string]Labels),
	}
}

// Label registers the axis labels of a channel
func (l *Logger) Label(channel string, labels Labels) {
	l.Labels[channel] = labels
}

// Append appends a value to a channel
func (l *Logger) Append(channel string, value float64) {
	l.Series[channel] = append(l.Series[channel], value)
}

// Channel returns the values logged to a channel
func (l *Logger) Channel(channel string) []float64 {
	return l.Series[channel]
}

// Last returns the most recent value of a channel
func (l *Logger) Last(channel string) (float64, bool) {
	series := l.Series[channel]
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// Channels returns the names of all labelled or non-empty channels in
// sorted order
func (l *Logger) Channels() []string {
	seen := make(map[string]bool)
	for name := range l.Series {
		seen[name] = true
	}
	for name := range l.Labels {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
