package client

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"barbershop/backend/internal/domain"
)

// writeMirror stores state as the last known good copy. Failures are logged
// only; the mirror is a convenience for offline reads.
func (c *Client) writeMirror(state domain.State) {
	if c.mirror == "" {
		return
	}
	raw, err := json.MarshalIndent(state.Normalized(), "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("encode mirror")
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.mirror), ".mirror-*")
	if err != nil {
		log.Warn().Err(err).Msg("write mirror")
		return
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		log.Warn().Err(err).Msg("write mirror")
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		log.Warn().Err(err).Msg("write mirror")
		return
	}
	if err := os.Rename(tmp.Name(), c.mirror); err != nil {
		_ = os.Remove(tmp.Name())
		log.Warn().Err(err).Msg("write mirror")
	}
}

func (c *Client) readMirror() (domain.State, error) {
	if c.mirror == "" {
		return domain.State{}, os.ErrNotExist
	}
	raw, err := os.ReadFile(c.mirror)
	if err != nil {
		return domain.State{}, err
	}
	var state domain.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.State{}, err
	}
	return state, nil
}
