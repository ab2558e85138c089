package muxer

import (
	"fmt"

	"mp4mux/pkg/mp4"
)

// writeUdtaLocation emits `udta>©xyz` holding an ISO-6709 location
// string, the same box QuickTime-family muxers use for a GPS fix. This
// is the supplemented WithLocation geodata feature, an addition of this
// repository (see DESIGN.md) — nothing else in this repo depends on the
// coordinates being present.
func writeUdtaLocation(w *mp4.Writer, latitude, longitude float32) error {
	loc := fmt.Sprintf("%+.4f%+.4f/", latitude, longitude)

	if err := w.BeginBox("udta"); err != nil {
		return err
	}
	if err := w.BeginBox("\xa9xyz"); err != nil {
		return err
	}
	if err := w.WriteI16(uint16(len(loc))); err != nil {
		return err
	}
	if err := w.WriteI16(0x15C7); err != nil { // language code, "en"-ish packed value
		return err
	}
	if err := w.WriteRaw([]byte(loc)); err != nil {
		return err
	}
	if err := w.EndBox(); err != nil { // ©xyz
		return err
	}
	return w.EndBox() // udta
}
