package branches

import (
	"errors"
	"strings"
)

func (s *Service) validate(b Branch) error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("branch name is required")
	}
	if b.IsOutlet && !b.UsesCentralStock {
		return errors.New("an outlet always sells from central stock")
	}
	return nil
}
