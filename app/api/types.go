package api

import (
	"github.com/htbwatch/htb-relay/app/database"
)

type Handler struct {
	deliveryRepo database.DeliveryRepository
	itemRepo     database.ItemRepository
	maxAttempts  int
	version      string
}
