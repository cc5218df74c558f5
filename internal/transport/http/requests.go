package httptransport

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"landledger/internal/domain"
	"landledger/internal/registry"
	dErrors "landledger/pkg/domain-errors"
)

// validate is shared by all request types. Struct tags carry the per-field
// rules; Validate methods add the cross-field checks tags cannot express.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError flattens the first field failure into the bad_request envelope.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Tag() == "required" {
			return dErrors.Newf(dErrors.CodeBadRequest, "%s is required", fe.Field())
		}
		return dErrors.Newf(dErrors.CodeBadRequest, "%s failed %s validation", fe.Field(), fe.Tag())
	}
	return dErrors.Wrap(dErrors.CodeBadRequest, "invalid request", err)
}

// RegisterRequest is the body for POST /api/v1/properties. PropertyID is
// normally omitted; federation imports may pin one.
type RegisterRequest struct {
	Scope       string `json:"scope" validate:"omitempty,max=32"`
	PropertyID  string `json:"propertyId" validate:"omitempty,max=64"`
	Owner       string `json:"owner" validate:"required,max=128"`
	SurveyNo    string `json:"surveyNo" validate:"required,max=32"`
	District    string `json:"district" validate:"required,max=64"`
	Mandal      string `json:"mandal" validate:"required,max=64"`
	Village     string `json:"village" validate:"required,max=64"`
	Area        string `json:"area" validate:"required,max=32"`
	LandType    string `json:"landType" validate:"required,max=32"`
	MarketValue string `json:"marketValue" validate:"required,numeric"`
	DocumentRef string `json:"documentRef" validate:"omitempty,max=256"`
}

func (r *RegisterRequest) Validate() error {
	r.Owner = strings.TrimSpace(r.Owner)
	r.SurveyNo = strings.TrimSpace(r.SurveyNo)
	r.District = strings.TrimSpace(r.District)
	r.Mandal = strings.TrimSpace(r.Mandal)
	r.Village = strings.TrimSpace(r.Village)
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

// ToDomain maps the wire request onto the service request.
func (r *RegisterRequest) ToDomain() registry.CreateRequest {
	return registry.CreateRequest{
		Scope:       r.Scope,
		PropertyID:  r.PropertyID,
		Owner:       r.Owner,
		SurveyNo:    r.SurveyNo,
		District:    r.District,
		Mandal:      r.Mandal,
		Village:     r.Village,
		Area:        r.Area,
		LandType:    r.LandType,
		MarketValue: r.MarketValue,
		DocumentRef: r.DocumentRef,
	}
}

// TransferRequest is the body for POST /api/v1/properties/{propertyID}/transfer.
// At least one of newOwner and marketValue must be set.
type TransferRequest struct {
	Scope       string `json:"scope" validate:"omitempty,max=32"`
	NewOwner    string `json:"newOwner" validate:"omitempty,max=128"`
	MarketValue string `json:"marketValue" validate:"omitempty,numeric"`
}

func (r *TransferRequest) Validate() error {
	r.NewOwner = strings.TrimSpace(r.NewOwner)
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	if r.NewOwner == "" && r.MarketValue == "" {
		return dErrors.New(dErrors.CodeBadRequest, "newOwner or marketValue is required")
	}
	return nil
}

// LinkDocumentRequest is the body for POST /api/v1/properties/{propertyID}/documents.
// The hash is anchored on the ledger; the chaincode enforces its own minimum.
type LinkDocumentRequest struct {
	Scope        string `json:"scope" validate:"omitempty,max=32"`
	DocumentHash string `json:"documentHash" validate:"required,min=32,max=128"`
	DocumentType string `json:"documentType" validate:"required,max=64"`
	FileURL      string `json:"fileUrl" validate:"omitempty,url,max=512"`
}

func (r *LinkDocumentRequest) Validate() error {
	r.DocumentHash = strings.TrimSpace(r.DocumentHash)
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

// ToDomain binds the document metadata to the property from the URL.
func (r *LinkDocumentRequest) ToDomain(propertyID string) domain.DocumentMeta {
	return domain.DocumentMeta{
		PropertyID:   propertyID,
		DocumentHash: r.DocumentHash,
		DocumentType: r.DocumentType,
		FileURL:      r.FileURL,
	}
}

// ReloadNetworksRequest is the optional body for POST /api/v1/admin/networks/reload.
// An empty path reloads the table the server was started with.
type ReloadNetworksRequest struct {
	Path string `json:"path" validate:"omitempty,max=512"`
}

func (r *ReloadNetworksRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}
