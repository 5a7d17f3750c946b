package auth

import (
	"fmt"
	"time"
)

// RevokedRedisKey monta a chave que marca um jti como encerrado.
func RevokedRedisKey(jti string) string {
	return fmt.Sprintf("revoked:%s", jti)
}

// RemainingTTL devolve quanto falta para o token expirar, nunca menos de um segundo.
func RemainingTTL(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Second
	}
	left := time.Until(claims.ExpiresAt.Time)
	if left < time.Second {
		return time.Second
	}
	return left
}
