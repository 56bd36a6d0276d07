package main

import (
	"fmt"
	"math/rand"
	"net/url"
)

// RandomNames is the pool of provisional display names handed to clients
// that connect without one.
var RandomNames = []string{
	"Roy Green", "Tracy Brooks", "Dale Clarke", "Rosa Griffin",
	"Phil Owen", "Linda Lucas", "Logan Kaur", "Brittany Delaney",
	"Alex Chen", "Jordan Taylor", "Casey Morgan", "Riley Anderson",
	"Quinn Parker", "Avery Martinez", "Drew Wilson", "Cameron Lee",
}

func randomName() string {
	return RandomNames[rand.Intn(len(RandomNames))]
}

var avatarColors = []string{"0D8ABC", "F59E0B", "10B981", "EF4444", "8B5CF6", "EC4899"}

// avatarURL builds a ui-avatars.com image for a display name; the background
// color is derived from the first byte so the same name keeps its look.
func avatarURL(name string) string {
	color := avatarColors[0]
	if name != "" {
		color = avatarColors[int(name[0])%len(avatarColors)]
	}
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=%s&color=fff&size=128", url.QueryEscape(name), color)
}

// roomCodeChars leaves out 0/O/1/I so codes survive being read aloud.
const roomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newRoomCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = roomCodeChars[rand.Intn(len(roomCodeChars))]
	}
	return string(b)
}
