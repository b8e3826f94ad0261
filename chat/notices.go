package chat

import "math/rand/v2"

// Signature is the phrase every first-visit introduction carries, and the
// primary candidate for presence searches.
const Signature = "Thawbot was here!"

// Intro is prepended to the first notice in a room the bot has never
// visited, so regulars know what the strange message is about.
const Intro = "Hi, I'm a bot that posts in quiet rooms so they don't get frozen. "

// noticePhrases rotate so the bot's posts don't read like a metronome.
// They double as legacy presence-search candidates; be careful about
// removing entries, old rooms may only contain the old phrasing.
var noticePhrases = []string{
	"thaw",
	"sprinkling antifreeze",
	"!freeze",
	"♫ the heat never bothered me anyway🎶",
	Signature,
}

// NoticeText picks a thawing notice at random.
func NoticeText() string {
	return noticePhrases[rand.IntN(len(noticePhrases))]
}

// PresencePhrases returns search candidates in priority order: the
// signature first, then the legacy phrases that older notices may carry.
func PresencePhrases() []string {
	phrases := []string{Signature}
	for _, p := range noticePhrases {
		if p != Signature {
			phrases = append(phrases, p)
		}
	}
	return phrases
}
