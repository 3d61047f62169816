package authcore

// The cipher boundary sits at the engine's persistence edge: records are
// sealed immediately before every UserProvider write and opened immediately
// after every read, so engine callers only ever see plaintext.

func (e *Engine) sealPII(record UserRecord) (UserRecord, error) {
	var err error
	if record.Email, err = e.cipher.Encrypt(record.Email); err != nil {
		return record, err
	}
	if record.Phone, err = e.cipher.Encrypt(record.Phone); err != nil {
		return record, err
	}
	if record.Address, err = e.cipher.Encrypt(record.Address); err != nil {
		return record, err
	}
	return record, nil
}

func (e *Engine) openPII(record UserRecord) UserRecord {
	record.Email = e.cipher.Decrypt(record.Email)
	record.Phone = e.cipher.Decrypt(record.Phone)
	record.Address = e.cipher.Decrypt(record.Address)
	return record
}
