package service

import (
	"context"
	"strings"

	"marketplace/internal/apperr"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"
)

// AddressService manages customer delivery addresses
type AddressService struct {
	repo store.Repository
}

func NewAddressService(repo store.Repository) *AddressService {
	return &AddressService{repo: repo}
}

// AddressRequest is the payload for a new address
type AddressRequest struct {
	Line    string `json:"line"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

func (r *AddressRequest) validate() error {
	e := &apperr.Error{Kind: apperr.KindInvalidInput, Fields: map[string]string{}}
	check := func(field, value string, max int) {
		switch v := strings.TrimSpace(value); {
		case v == "":
			e.Fields[field] = "this field is required"
		case len(v) > max:
			e.Fields[field] = "too long"
		}
	}
	check("line", r.Line, 200)
	check("city", r.City, 100)
	check("state", r.State, 100)
	check("pincode", r.Pincode, 10)

	if len(e.Fields) == 0 {
		return nil
	}
	e.Message = "invalid address"
	return e
}

func (s *AddressService) List(ctx context.Context, p models.Principal) ([]models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.List")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return nil, err
	}
	return s.repo.ListDefaultAddresses(ctx, p.CustomerID)
}

// Create stores a new address for the customer; it is listed until removed
func (s *AddressService) Create(ctx context.Context, p models.Principal, req *AddressRequest) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "AddressService.Create")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	addr := &models.Address{
		CustomerID: p.CustomerID,
		Line:       strings.TrimSpace(req.Line),
		City:       strings.TrimSpace(req.City),
		State:      strings.TrimSpace(req.State),
		Pincode:    strings.TrimSpace(req.Pincode),
		IsDefault:  true,
	}
	if err := s.repo.CreateAddress(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

// Remove hides the address from the list. Orders keep referencing it.
func (s *AddressService) Remove(ctx context.Context, p models.Principal, addressID int64) error {
	ctx, span := util.StartSpan(ctx, "AddressService.Remove")
	defer span.End()

	if err := requireCustomer(p); err != nil {
		return err
	}
	return s.repo.UnsetDefaultAddress(ctx, p.CustomerID, addressID)
}
