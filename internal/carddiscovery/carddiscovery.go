// Package carddiscovery enumerates sound cards via udev so DriverShell
// construction can read a card's advertised driver name and feed
// it to hwprofile.Select without the caller having to know ALSA's
// /proc/asound layout.
package carddiscovery

import (
	"fmt"
	"sort"

	"github.com/jochenvg/go-udev"
)

// Card describes one enumerated sound card.
type Card struct {
	// Device is the ALSA-style device string this card should be
	// opened with, e.g. "hw:0".
	Device string
	// DriverName is the card's advertised driver/chip name, fed to
	// hwprofile.Select ("RME9652", "Hammerfall-DSP", or an unrecognized
	// string that falls back to the Generic profile).
	DriverName string
	// Index is the ALSA card index.
	Index int
}

// List enumerates sound cards currently known to udev, sorted by
// index.
func List() ([]Card, error) {
	var u udev.Udev
	var enum = u.NewEnumerate()

	if err := enum.AddMatchSubsystem("sound"); err != nil {
		return nil, fmt.Errorf("carddiscovery: match sound subsystem: %w", err)
	}
	if err := enum.AddMatchIsInitialized(); err != nil {
		return nil, fmt.Errorf("carddiscovery: match initialized: %w", err)
	}

	var devices, err = enum.Devices()
	if err != nil {
		return nil, fmt.Errorf("carddiscovery: enumerate: %w", err)
	}

	var seen = make(map[int]Card)
	for _, d := range devices {
		var index, ok = cardIndex(d.Sysname())
		if !ok {
			continue
		}
		var name = d.PropertyValue("ID_MODEL")
		if name == "" {
			name = d.PropertyValue("ID_MODEL_ID")
		}
		if _, exists := seen[index]; !exists || name != "" {
			seen[index] = Card{Device: fmt.Sprintf("hw:%d", index), DriverName: name, Index: index}
		}
	}

	var cards = make([]Card, 0, len(seen))
	for _, c := range seen {
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Index < cards[j].Index })
	return cards, nil
}

// cardIndex parses a udev sysname like "card1" or "pcmC1D0p" into an
// ALSA card index.
func cardIndex(sysname string) (int, bool) {
	var index int
	var n, err = fmt.Sscanf(sysname, "card%d", &index)
	if err == nil && n == 1 {
		return index, true
	}
	n, err = fmt.Sscanf(sysname, "pcmC%dD", &index)
	if err == nil && n == 1 {
		return index, true
	}
	return 0, false
}
