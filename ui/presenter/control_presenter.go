package presenter

// Trigger is the key-trigger controller as seen by the control loop.
type Trigger interface {
	Enable() error
	Disable()
	Enabled() bool
	Toggle() bool
}

// ControlView reflects whether the trigger is armed.
type ControlView interface {
	SetArmed(bool)
}

// ControlPresenter owns arming and disarming the key trigger.
type ControlPresenter struct {
	trigger Trigger
	view    ControlView
}

func NewControlPresenter(trigger Trigger, view ControlView) *ControlPresenter {
	return &ControlPresenter{trigger: trigger, view: view}
}

// Enable arms the trigger. Idempotent.
func (c *ControlPresenter) Enable() error {
	if c == nil || c.trigger == nil || c.view == nil {
		return nil
	}
	if c.trigger.Enabled() {
		return nil
	}
	if err := c.trigger.Enable(); err != nil {
		c.view.SetArmed(false)
		return err
	}
	c.view.SetArmed(true)
	return nil
}

// Disable disarms the trigger and stops any worker. Idempotent.
func (c *ControlPresenter) Disable() {
	if c == nil || c.trigger == nil || c.view == nil {
		return
	}
	if !c.trigger.Enabled() {
		return
	}
	c.trigger.Disable()
	c.view.SetArmed(false)
}

// Toggle flips the worker without a key press.
func (c *ControlPresenter) Toggle() bool {
	if c == nil || c.trigger == nil {
		return false
	}
	return c.trigger.Toggle()
}
