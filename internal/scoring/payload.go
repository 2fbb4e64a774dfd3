package scoring

import (
	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/window"
)

// Params returns the parameter payload recorded with every snapshot.
func (w Weights) Params() domain.Payload {
	return domain.Payload{
		domain.KeyParamWindow: window.Size,
		"w_c1":                w.C1,
		"w_c2":                w.C2,
		"w_c3":                w.C3,
		"w_c4":                w.C4,
		"w_c5":                w.C5,
	}
}

// Values returns the value payload persisted for a scored row.
func Values(r domain.AccumRow) domain.Payload {
	return domain.Payload{
		domain.KeyScore:   r.Score,
		domain.KeySetup:   r.Setup,
		domain.KeyC1:      r.C1VolCompression,
		domain.KeyC2:      r.C2UpDownVolume,
		domain.KeyC3:      r.C3MoneyFlow,
		domain.KeyC4:      r.C4NoSupply,
		domain.KeyC5:      r.C5Spring,
		domain.KeyClose:   r.Close,
		domain.KeyBoxHigh: r.BoxHigh20,
		domain.KeyBoxLow:  r.BoxLow20,
		domain.KeyVolume:  r.Volume,
	}
}
