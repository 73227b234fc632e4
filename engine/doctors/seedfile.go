package doctors

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/carenav/carenav/engine/domain"
)

type seedFile struct {
	Doctors []domain.Doctor `yaml:"doctors"`
}

// LoadSeedFile reads a YAML (or JSON) file of the form
//
//	doctors:
//	  - name: Dr. A
//	    specialty: Cardiologist
//	    phone: "0123"
//	    location: Dhaka
//	    experience: 10
//
// and validates every record.
func LoadSeedFile(path string) ([]domain.Doctor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("doctors: read seed %s: %w", path, err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("doctors: parse seed %s: %w", path, err)
	}
	for i, d := range f.Doctors {
		if err := domain.ValidateDoctor(d); err != nil {
			return nil, fmt.Errorf("doctors: seed record %d: %w", i+1, err)
		}
	}
	return f.Doctors, nil
}
