// Package notification implements the human-facing notifiers: a Telegram
// bot with trading commands and an SMTP mailer.
package notification

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/order"
	"github.com/aricooperman/golean/service"
	"github.com/aricooperman/golean/tools/log"
)

var (
	buyRegexp  = regexp.MustCompile(`/buy\s+(?P<symbol>\w+)\s+(?P<amount>\d+(?:\.\d+)?)(?P<percent>%)?`)
	sellRegexp = regexp.MustCompile(`/sell\s+(?P<symbol>\w+)\s+(?P<amount>\d+(?:\.\d+)?)(?P<percent>%)?`)
)

// Settings configures the Telegram bot: the BotFather token and the user IDs
// allowed to command it.
type Settings struct {
	Token string
	Users []int
}

// StatusController exposes the algorithm lifecycle to the bot commands.
type StatusController interface {
	Status() model.AlgorithmStatus
	SetStatus(status model.AlgorithmStatus)
}

type telegram struct {
	settings    Settings
	controller  *order.Controller
	broker      service.Broker
	algorithm   StatusController
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
}

type Option func(telegram *telegram)

// NewTelegram builds the bot, registers its commands and wires the keyboard
// menu. Only the configured users pass the middleware.
func NewTelegram(controller *order.Controller, broker service.Broker,
	algorithm StatusController, settings Settings, options ...Option) (service.Telegram, error) {

	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	userMiddleware := tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("no message, ", u)
			return false
		}

		for _, user := range settings.Users {
			if int(u.Message.Sender.ID) == user {
				return true
			}
		}
		log.Error("invalid user, ", u.Message)
		return false
	})

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Token,
		Poller:    userMiddleware,
	})
	if err != nil {
		return nil, err
	}

	var (
		statusBtn  = menu.Text("/status")
		balanceBtn = menu.Text("/balance")
		ordersBtn  = menu.Text("/orders")
		stopBtn    = menu.Text("/stop")
		buyBtn     = menu.Text("/buy")
		sellBtn    = menu.Text("/sell")
	)

	err = client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/stop", Description: "Stop the algorithm"},
		{Text: "/status", Description: "Check algorithm status"},
		{Text: "/balance", Description: "Account balance"},
		{Text: "/orders", Description: "List open orders"},
		{Text: "/buy", Description: "Open a buy order"},
		{Text: "/sell", Description: "Open a sell order"},
	})
	if err != nil {
		return nil, err
	}

	menu.Reply(
		menu.Row(statusBtn, balanceBtn, ordersBtn),
		menu.Row(stopBtn, buyBtn, sellBtn),
	)

	bot := &telegram{
		controller:  controller,
		broker:      broker,
		algorithm:   algorithm,
		client:      client,
		settings:    settings,
		defaultMenu: menu,
	}

	for _, option := range options {
		option(bot)
	}

	client.Handle("/help", bot.HelpHandle)
	client.Handle("/stop", bot.StopHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/balance", bot.BalanceHandle)
	client.Handle("/orders", bot.OrdersHandle)
	client.Handle("/buy", bot.BuyHandle)
	client.Handle("/sell", bot.SellHandle)

	return bot, nil
}

func (t telegram) Start() {
	go t.client.Start()
	for _, id := range t.settings.Users {
		_, err := t.client.Send(&tb.User{ID: int64(id)}, "Bot initialized.", t.defaultMenu)
		if err != nil {
			log.Error(err)
		}
	}
}

func (t telegram) Notify(text string) {
	for _, user := range t.settings.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text)
		if err != nil {
			log.Error(err)
		}
	}
}

func (t telegram) BalanceHandle(m *tb.Message) {
	message := "*BALANCE*\n"
	total := 0.0

	account, err := t.broker.Account()
	if err != nil {
		log.Error(err)
		t.OnError(err)
		return
	}

	for _, balance := range account.Balances {
		size := balance.Free + balance.Lock
		total += size
		message += fmt.Sprintf("%s: `%.4f`\n", balance.Asset, size)
	}
	message += fmt.Sprintf("-----\nTotal: `%.4f`\n", total)

	_, err = t.client.Send(m.Sender, message)
	if err != nil {
		log.Error(err)
	}
}

func (t telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		log.Error(err)
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}

	_, err = t.client.Send(m.Sender, strings.Join(lines, "\n"))
	if err != nil {
		log.Error(err)
	}
}

func (t telegram) OrdersHandle(m *tb.Message) {
	message := "*OPEN ORDERS*\n"
	count := 0
	for _, symbol := range t.controller.Symbols() {
		orders, err := t.broker.OpenOrders(symbol)
		if err != nil {
			log.Error(err)
			t.OnError(err)
			return
		}
		for _, o := range orders {
			message += fmt.Sprintf("`%s`\n", o)
			count++
		}
	}
	if count == 0 {
		message = "No open orders."
	}

	_, err := t.client.Send(m.Sender, message)
	if err != nil {
		log.Error(err)
	}
}

func (t telegram) parseOrderCommand(m *tb.Message, re *regexp.Regexp) (symbol string, amount float64, ok bool) {
	match := re.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		_, err := t.client.Send(m.Sender,
			"Invalid command.\nExamples of usage:\n`/buy FOO 100`\n\n`/buy FOO 50%`")
		if err != nil {
			log.Error(err)
		}
		return "", 0, false
	}

	command := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i != 0 && name != "" {
			command[name] = match[i]
		}
	}

	symbol = strings.ToUpper(command["symbol"])
	amount, err := strconv.ParseFloat(command["amount"], 64)
	if err != nil {
		log.Error(err)
		t.OnError(err)
		return "", 0, false
	} else if amount <= 0 {
		_, err := t.client.Send(m.Sender, "Invalid amount")
		if err != nil {
			log.Error(err)
		}
		return "", 0, false
	}

	if command["percent"] != "" {
		position, _, err := t.broker.Position(symbol)
		if err != nil {
			log.Error(err)
			t.OnError(err)
			return "", 0, false
		}
		amount = amount * position / 100.0
	}
	return symbol, amount, true
}

func (t telegram) BuyHandle(m *tb.Message) {
	symbol, amount, ok := t.parseOrderCommand(m, buyRegexp)
	if !ok {
		return
	}

	o, err := t.controller.CreateOrderMarket(model.SideTypeBuy, symbol, amount)
	if err != nil {
		return
	}
	log.Info("[TELEGRAM]: BUY ORDER CREATED: ", o)
}

func (t telegram) SellHandle(m *tb.Message) {
	symbol, amount, ok := t.parseOrderCommand(m, sellRegexp)
	if !ok {
		return
	}

	o, err := t.controller.CreateOrderMarket(model.SideTypeSell, symbol, amount)
	if err != nil {
		return
	}
	log.Info("[TELEGRAM]: SELL ORDER CREATED: ", o)
}

func (t telegram) StatusHandle(m *tb.Message) {
	status := t.algorithm.Status()
	_, err := t.client.Send(m.Sender, fmt.Sprintf("Status: `%s`", status))
	if err != nil {
		log.Error(err)
	}
}

func (t telegram) StopHandle(m *tb.Message) {
	if t.algorithm.Status().IsTerminal() {
		_, err := t.client.Send(m.Sender, "Bot is already stopped.", t.defaultMenu)
		if err != nil {
			log.Error(err)
		}
		return
	}

	t.algorithm.SetStatus(model.StatusStopped)
	_, err := t.client.Send(m.Sender, "Bot stopped.", t.defaultMenu)
	if err != nil {
		log.Error(err)
	}
}

func (t telegram) OnOrder(o model.Order) {
	title := ""
	switch o.Status {
	case model.OrderStatusTypeFilled:
		title = fmt.Sprintf("✅ ORDER FILLED - %s", o.Symbol)
	case model.OrderStatusTypeNew:
		title = fmt.Sprintf("🆕 NEW ORDER - %s", o.Symbol)
	case model.OrderStatusTypeCanceled, model.OrderStatusTypeRejected:
		title = fmt.Sprintf("❌ ORDER CANCELED / REJECTED - %s", o.Symbol)
	}

	message := fmt.Sprintf("%s\n-----\n%s", title, o)
	t.Notify(message)
}

func (t telegram) OnError(err error) {
	title := "🛑 ERROR"
	t.Notify(fmt.Sprintf("%s\n-----\n%s", title, err))
}
