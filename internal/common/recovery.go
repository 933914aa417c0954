package common

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// RecoverFromPanic гасит панику в фоновой задаче и пишет стек в лог.
// Вызывается через defer в начале задачи: defer common.RecoverFromPanic("monthly_reset").
func RecoverFromPanic(component string) {
	if r := recover(); r != nil {
		log.WithFields(log.Fields{
			"component": component,
			"panic":     fmt.Sprintf("%v", r),
			"stack":     string(debug.Stack()),
		}).Error("ПАНИКА в фоновой задаче — восстановлено")
	}
}
