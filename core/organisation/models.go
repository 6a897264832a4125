package organisation

import "github.com/trezcool/ratiba/core"

type Organisation struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type NewOrganisation struct {
	Name string `json:"name" validate:"required,notblank,max=255"`
}

func (no *NewOrganisation) Validate() error {
	no.Name = core.CleanString(no.Name)
	return core.Validate.Struct(no)
}
