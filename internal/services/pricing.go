package services

import (
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/validation"
)

// Price is a net amount with its VAT and gross totals.
type Price struct {
	Net   float64 `json:"net"`
	VAT   float64 `json:"vat"`
	Gross float64 `json:"gross"`
	// Display is the amount shown to customers under the site's pricing mode.
	Display float64 `json:"display"`
	Mode    string  `json:"mode"`
}

// Pricing computes VAT totals for catalogue prices, which are stored ex VAT.
type Pricing struct{}

func NewPricing() Pricing { return Pricing{} }

// Quote splits a net price at vatRate percent and picks the display amount.
func (Pricing) Quote(net, vatRate float64, mode string) Price {
	p := Price{Net: validation.Round2(net), Mode: mode}
	p.VAT = validation.Round2(net * vatRate / 100)
	p.Gross = validation.Round2(p.Net + p.VAT)
	if mode == models.PricingIncVAT {
		p.Display = p.Gross
	} else {
		p.Mode = models.PricingExVAT
		p.Display = p.Net
	}
	return p
}
