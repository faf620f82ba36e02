package service

import "time"

// IsExpired informa si now supera reference + window.
// Es el unico predicado de expiracion: codigos MFA, codigos de autorizacion y
// codigos de verificacion de email lo comparten.
func IsExpired(reference time.Time, window time.Duration, now time.Time) bool {
	return now.After(reference.Add(window))
}
