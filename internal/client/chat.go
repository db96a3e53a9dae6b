package client

// ChatHistory is how many chat lines the client keeps.
const ChatHistory = 10

// ChatLog is a ring of the most recent chat lines.
type ChatLog struct {
	lines [ChatHistory]string
	start int
	n     int
}

// Add appends line, evicting the oldest one when full.
func (c *ChatLog) Add(line string) {
	if c.n < ChatHistory {
		c.lines[(c.start+c.n)%ChatHistory] = line
		c.n++
		return
	}
	c.lines[c.start] = line
	c.start = (c.start + 1) % ChatHistory
}

// Lines returns the kept lines, oldest first.
func (c *ChatLog) Lines() []string {
	out := make([]string, c.n)
	for i := range out {
		out[i] = c.lines[(c.start+i)%ChatHistory]
	}
	return out
}

func (c *ChatLog) Len() int { return c.n }
