package rpc

import (
	"fmt"
	"strings"
)

// ValidateGenerateRequest performs structural checks the engine cannot see
// once the request is converted. Geometry and parameter checks stay in core.
func ValidateGenerateRequest(req *GenerateRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.BoundaryWKT) != "" && len(req.InfillAreas.Polygons) > 0 {
		return fmt.Errorf("%w: set either infill_areas or boundary_wkt, not both", ErrInvalidRequest)
	}
	if req.Settings.MachineWidth < 0 || req.Settings.MachineDepth < 0 {
		return fmt.Errorf("%w: machine dimensions must not be negative", ErrInvalidRequest)
	}
	return nil
}
