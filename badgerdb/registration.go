package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/dgraph-io/badger/v4"

	"meeting-registration/ledger"
	"meeting-registration/registration"
)

var _ ledger.Store = &DB{}

type registrationBadger struct {
	ID             int                     `json:"id"`
	Version        int                     `json:"version"`
	Timestamp      time.Time               `json:"timestamp"`
	Station        string                  `json:"station"`
	District       string                  `json:"district"`
	Church         string                  `json:"church"`
	LeaderName     string                  `json:"leaderName"`
	LeaderPhone    string                  `json:"leaderPhone"`
	LeaderEmail    *string                 `json:"leaderEmail,omitempty"`
	Attendees      []registration.Attendee `json:"attendees"`
	AmountMinor    int64                   `json:"amountMinor"`
	AmountCurrency string                  `json:"amountCurrency"`
	InvoiceNumber  string                  `json:"invoiceNumber"`
	Paid           bool                    `json:"paid"`
	PaidAt         *time.Time              `json:"paidAt,omitempty"`
}

const (
	registrationPrefix = "reg:"
	invoicePrefix      = "inv:"
)

// Zero padded so iteration order matches the id order.
func registrationKey(id int) []byte {
	return []byte(fmt.Sprintf("%s%010d", registrationPrefix, id))
}

func invoiceKey(invoiceNumber string) []byte {
	return []byte(invoicePrefix + invoiceNumber)
}

func registrationToBadger(reg registration.Registration) registrationBadger {
	return registrationBadger{
		ID:             reg.ID,
		Version:        reg.Version,
		Timestamp:      reg.Timestamp,
		Station:        reg.Station,
		District:       reg.District,
		Church:         reg.Church,
		LeaderName:     reg.LeaderName,
		LeaderPhone:    reg.LeaderPhone,
		LeaderEmail:    reg.LeaderEmail,
		Attendees:      reg.Attendees,
		AmountMinor:    reg.Amount.Amount(),
		AmountCurrency: reg.Amount.Currency().Code,
		InvoiceNumber:  reg.InvoiceNumber,
		Paid:           reg.Paid,
		PaidAt:         reg.PaidAt,
	}
}

func badgerToRegistration(b registrationBadger) registration.Registration {
	return registration.Registration{
		ID:            b.ID,
		Version:       b.Version,
		Timestamp:     b.Timestamp,
		Station:       b.Station,
		District:      b.District,
		Church:        b.Church,
		LeaderName:    b.LeaderName,
		LeaderPhone:   b.LeaderPhone,
		LeaderEmail:   b.LeaderEmail,
		Attendees:     b.Attendees,
		Amount:        money.New(b.AmountMinor, b.AmountCurrency),
		InvoiceNumber: b.InvoiceNumber,
		Paid:          b.Paid,
		PaidAt:        b.PaidAt,
	}
}

func (d *DB) CreateRegistration(ctx context.Context, reg registration.Registration) error {
	if err := ctx.Err(); err != nil {
		return registration.NewTimeoutError("CreateRegistration cancelled")
	}

	value, err := json.Marshal(registrationToBadger(reg))
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate registration to badger model", err)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, registrationKey(reg.ID)); err != nil {
			return err
		} else if exists {
			return registration.NewRegistrationAlreadyExistsError(fmt.Sprintf("Registration with ID %d already exists", reg.ID), nil)
		}
		if exists, err := keyExists(txn, invoiceKey(reg.InvoiceNumber)); err != nil {
			return err
		} else if exists {
			return registration.NewRegistrationAlreadyExistsError(fmt.Sprintf("Invoice number %q already exists", reg.InvoiceNumber), nil)
		}

		if err := txn.Set(registrationKey(reg.ID), value); err != nil {
			return err
		}
		return txn.Set(invoiceKey(reg.InvoiceNumber), []byte(fmt.Sprintf("%d", reg.ID)))
	})
	if err != nil {
		if registration.IsReason(err, registration.REASON_REGISTRATION_ALREADY_EXISTS) {
			return err
		}
		return registration.NewFailedToWriteError("Failed badger update", err)
	}

	return nil
}

func (d *DB) UpdateRegistrationToPaid(ctx context.Context, reg registration.Registration) error {
	if err := ctx.Err(); err != nil {
		return registration.NewTimeoutError("UpdateRegistrationToPaid cancelled")
	}

	value, err := json.Marshal(registrationToBadger(reg))
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate registration to badger model", err)
	}

	err = d.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(registrationKey(reg.ID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("registration %d is not stored", reg.ID)
			}
			return err
		}

		var stored registrationBadger
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
		if err != nil {
			return err
		}
		if stored.Version != reg.Version-1 {
			return fmt.Errorf("version conflict updating registration %d: stored %d, writing %d", reg.ID, stored.Version, reg.Version)
		}

		return txn.Set(registrationKey(reg.ID), value)
	})
	if err != nil {
		return registration.NewFailedToWriteError(fmt.Sprintf("Failed to mark registration %d paid", reg.ID), err)
	}

	return nil
}

func (d *DB) GetRegistration(ctx context.Context, id int) (registration.Registration, error) {
	if err := ctx.Err(); err != nil {
		return registration.Registration{}, registration.NewTimeoutError("GetRegistration cancelled")
	}

	var stored registrationBadger
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(registrationKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("Registration with id %d not found", id), nil)
		}
		return registration.Registration{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch registration with id %d", id), err)
	}

	return badgerToRegistration(stored), nil
}

// LoadRegistrations returns every stored registration in id order.
func (d *DB) LoadRegistrations(ctx context.Context) ([]registration.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, registration.NewTimeoutError("LoadRegistrations cancelled")
	}

	var regs []registration.Registration
	err := d.db.View(func(txn *badger.Txn) error {
		prefix := []byte(registrationPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var stored registrationBadger
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			})
			if err != nil {
				return registration.NewFailedToTranslateToDBModelError(fmt.Sprintf("Failed to decode %s", it.Item().Key()), err)
			}
			regs = append(regs, badgerToRegistration(stored))
		}
		return nil
	})
	if err != nil {
		if registration.IsReason(err, registration.REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL) {
			return nil, err
		}
		return nil, registration.NewFailedToFetchError("Failed to iterate registrations", err)
	}

	d.logger.Debug("loaded registrations from badger", slog.Int("count", len(regs)))
	return regs, nil
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}
