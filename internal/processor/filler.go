package processor

import "math/rand/v2"

const (
	MinFillerMessages = 10
	MaxFillerMessages = 15
)

var fillerLines = []string{
	"Hi everyone!",
	"Welcome to the group.",
	"Good morning",
	"How is everyone doing today?",
	"Glad to be here",
	"Nice to meet you all",
	"What are we talking about today?",
	"Hello from my side",
	"Have a great day!",
	"Thanks for the invite",
	"Anyone around?",
	"This looks like a good place to chat",
	"Let's keep it friendly",
	"Greetings",
	"Happy to join",
	"Cheers",
	"Looking forward to the discussions",
	"Hey there",
	"Good evening everyone",
	"See you around",
}

// FillerMessages returns between MinFillerMessages and MaxFillerMessages
// lines picked from the built-in pool.
func FillerMessages() []string {
	n := MinFillerMessages + rand.IntN(MaxFillerMessages-MinFillerMessages+1)
	out := make([]string, n)
	for i := range out {
		out[i] = fillerLines[rand.IntN(len(fillerLines))]
	}
	return out
}
