package notify

import "github.com/reboucasericka/Sistema-sub001/internal/model"

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusPending:
		return "pendente"
	case model.StatusConfirmed:
		return "confirmado"
	case model.StatusCompleted:
		return "concluído"
	case model.StatusCanceled:
		return "cancelado"
	}
	return string(s)
}
