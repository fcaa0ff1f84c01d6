package handler

import (
	"log"
	"net/http"
	"strconv"

	notification "anoa.com/evalhub/internal/modules/notification/service"
	"anoa.com/evalhub/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type NotificationHandler struct {
	service     notification.Service
	redisClient *redis.Client
	upgrader    websocket.Upgrader
}

func NewNotificationHandler(service notification.Service, redisClient *redis.Client) *NotificationHandler {
	return &NotificationHandler{
		service:     service,
		redisClient: redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	notifications, err := h.service.GetNotifications(c.Request.Context(), limit, offset)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": notifications})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	if err := h.service.MarkAsRead(c.Request.Context(), id); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.service.MarkAllAsRead(c.Request.Context()); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context())
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// HandleWebSocket streams staff notifications published on redis to the
// connected operator console.
func (h *NotificationHandler) HandleWebSocket(c *gin.Context) {
	if h.redisClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live notifications unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	pubsub := h.redisClient.Subscribe(c.Request.Context(), notification.StaffChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(c.Request.Context()); err != nil {
		log.Printf("Failed to subscribe to redis channel: %v", err)
		return
	}

	ch := pubsub.Channel()

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Printf("Failed to write message to websocket: %v", err)
				return
			}
		case <-clientClosed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
